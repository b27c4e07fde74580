package detections

const (
	InputWidth    = 224
	InputHeight   = 224
	InputChannels = 3

	// NumClasses is the size of the GTSRB class catalog.
	NumClasses = 43

	DefaultConfidenceThreshold = 0.3
	DefaultTopK                = 5
)
