package l1decode

// COCOLabels is the 80-class COCO vocabulary in model class-index order.
var COCOLabels = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat", "traffic light",
	"fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard",
	"tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
	"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone",
	"microwave", "oven", "toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
	"hair drier", "toothbrush",
}

// LabelPerson is the class label tracked for motion and counted as people.
const LabelPerson = "person"

// LabelUnknown is assigned to class indices beyond the vocabulary. It is
// never on an allow-list, so such anchors are always discarded.
const LabelUnknown = "unknown"

// LabelSet is a closed set of class labels.
type LabelSet map[string]struct{}

// NewLabelSet builds a LabelSet from a list of labels.
func NewLabelSet(labels []string) LabelSet {
	s := make(LabelSet, len(labels))
	for _, l := range labels {
		s[l] = struct{}{}
	}
	return s
}

// Contains reports whether label is in the set.
func (s LabelSet) Contains(label string) bool {
	_, ok := s[label]
	return ok
}

// labelFor maps a class index to its vocabulary label.
func labelFor(vocab []string, classIdx int) string {
	if classIdx < 0 || classIdx >= len(vocab) {
		return LabelUnknown
	}
	return vocab[classIdx]
}
