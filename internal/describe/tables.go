package describe

// tagRule emits tag when any of labels was detected
type tagRule struct {
	tag    string
	labels []string
}

// Tag order in the output follows these slices.
var sceneTable = []tagRule{
	{"indoor", []string{"couch", "bed", "tv", "chair", "dining table", "toilet", "refrigerator", "oven", "microwave", "sink", "toaster", "vase", "clock", "potted plant"}},
	{"outdoor", []string{"car", "bus", "truck", "traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bicycle", "motorcycle", "airplane", "boat", "train"}},
	{"nature", []string{"bird", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "potted plant"}},
	{"office", []string{"laptop", "keyboard", "mouse", "book", "cell phone", "remote", "scissors"}},
	{"food", []string{"banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "bowl", "cup", "wine glass", "bottle", "fork", "knife", "spoon"}},
	{"people", []string{"person"}},
}

var activityTable = []tagRule{
	{"working", []string{"laptop", "keyboard", "mouse"}},
	{"sports", []string{"sports ball", "tennis racket", "baseball bat", "baseball glove", "skateboard", "surfboard", "skis", "snowboard", "frisbee", "kite"}},
	{"eating", []string{"fork", "knife", "spoon", "pizza", "sandwich", "hot dog", "cake", "donut", "dining table"}},
	{"reading", []string{"book"}},
	{"transportation", []string{"car", "bus", "train", "truck", "airplane", "boat", "motorcycle", "bicycle"}},
}

// document phrasing used instead of object-based captions
var documentCaptions = map[string]string{
	"receipt":      "A photo of a receipt",
	"businessCard": "A photo of a business card",
	"form":         "A photo of a form",
	"letter":       "A photo of a letter",
	"article":      "A photo of a printed article",
}
