package main

import (
	"os"
	"path/filepath"
	"runtime"
)

// resolveSharedLibrary locates the ONNX Runtime shared library before the
// environment is initialized. ONNXRUNTIME_SHARED_LIBRARY wins; otherwise a
// lib/ directory next to the executable is tried. An empty return leaves
// onnxruntime_go on its platform-default lookup.
func resolveSharedLibrary() string {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY"); p != "" {
		return p
	}

	libName := "libonnxruntime.so"
	switch runtime.GOOS {
	case "darwin":
		libName = "libonnxruntime.dylib"
	case "windows":
		libName = "onnxruntime.dll"
	}

	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	for _, dir := range []string{filepath.Join(filepath.Dir(exe), "lib"), filepath.Dir(exe)} {
		candidate := filepath.Join(dir, libName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
