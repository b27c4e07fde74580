package detections

import "fmt"

// Catalog maps class ids to human-readable labels. Immutable after
// construction; a single instance is shared read-only across all decode
// calls.
type Catalog struct {
	labels []string
}

func NewCatalog(labels []string) (*Catalog, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("catalog must have at least one label")
	}
	c := &Catalog{labels: make([]string, len(labels))}
	copy(c.labels, labels)
	return c, nil
}

func (c *Catalog) Size() int {
	return len(c.labels)
}

// Label returns the label for classID, or a placeholder for ids outside
// the catalog.
func (c *Catalog) Label(classID int) string {
	if classID < 0 || classID >= len(c.labels) {
		return fmt.Sprintf("unknown class %d", classID)
	}
	return c.labels[classID]
}

// gtsrbLabels are the 43 GTSRB classes in class-id order.
var gtsrbLabels = []string{
	"Speed limit (20km/h)",
	"Speed limit (30km/h)",
	"Speed limit (50km/h)",
	"Speed limit (60km/h)",
	"Speed limit (70km/h)",
	"Speed limit (80km/h)",
	"End of speed limit (80km/h)",
	"Speed limit (100km/h)",
	"Speed limit (120km/h)",
	"No passing",
	"No passing veh over 3.5 tons",
	"Right-of-way at intersection",
	"Priority road",
	"Yield",
	"Stop",
	"No vehicles",
	"Veh > 3.5 tons prohibited",
	"No entry",
	"General caution",
	"Dangerous curve left",
	"Dangerous curve right",
	"Double curve",
	"Bumpy road",
	"Slippery road",
	"Road narrows on the right",
	"Road work",
	"Traffic signals",
	"Pedestrians",
	"Children crossing",
	"Bicycles crossing",
	"Beware of ice/snow",
	"Wild animals crossing",
	"End speed + passing limits",
	"Turn right ahead",
	"Turn left ahead",
	"Ahead only",
	"Go straight or right",
	"Go straight or left",
	"Keep right",
	"Keep left",
	"Roundabout mandatory",
	"End of no passing",
	"End no passing veh > 3.5 tons",
}

// GTSRB returns the German traffic sign catalog.
func GTSRB() *Catalog {
	return &Catalog{labels: gtsrbLabels}
}
