package detection

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// NumClasses is the size of the detection vocabulary.
const NumClasses = 80

// cocoLabels is the 80-class COCO vocabulary in model output order.
var cocoLabels = [NumClasses]string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}

// Labels maps class indices to names.
type Labels []string

// DefaultLabels returns the COCO vocabulary.
func DefaultLabels() Labels {
	return Labels(cocoLabels[:])
}

// Name returns the label for idx, or "unknown" when out of range.
func (l Labels) Name(idx int) string {
	if idx < 0 || idx >= len(l) {
		return "unknown"
	}
	return l[idx]
}

// LoadLabels reads one label per line from path. Blank lines are skipped.
func LoadLabels(path string) (Labels, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from settings
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer func() { _ = f.Close() }()

	var labels Labels
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if l := strings.TrimSpace(scanner.Text()); l != "" {
			labels = append(labels, l)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}
