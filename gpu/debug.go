package gpu

import (
	"log"
	"os"
)

// Debug enables verbose logging of buffer allocation, compilation and
// dispatch. It starts on when PERCEPTRA_GPU_DEBUG is set.
var Debug = os.Getenv("PERCEPTRA_GPU_DEBUG") != ""

// Logger receives debug output. Replace it to redirect.
var Logger = log.New(os.Stderr, "[gpu] ", log.LstdFlags)

// Log writes one debug line.
func Log(format string, args ...interface{}) {
	Logger.Printf(format, args...)
}
