// Package models - Built-in label sets and the model registry.
package models

import (
	"github.com/pkg/errors"
)

// LabelSet identifies a built-in list of class names.
type LabelSet string

const (
	// LabelSetCOCO is the 80 COCO classes in YOLO order, no background.
	LabelSetCOCO LabelSet = "coco"
	// LabelSetVOC is the 20 Pascal VOC classes, no background.
	LabelSetVOC LabelSet = "voc"
)

// ErrUnknownLabelSet is returned when a label set name isn't registered.
var ErrUnknownLabelSet = errors.New("unknown label set")

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet ties a label set to its full list of labels.
type OutputClassSet struct {
	// Label set identifier.
	Style LabelSet
	// Classes ordered by index.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		s.nameToIdx[c.Name] = c.Index
	}
}

// Names returns the class names ordered by index.
func (s OutputClassSet) Names() []string {
	names := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		names[i] = c.Name
	}
	return names
}

// ClassManager holds all registered label sets.
type ClassManager struct {
	sets map[LabelSet]*OutputClassSet
}

// NewClassManager initializes and registers the given sets.
func NewClassManager(allSets ...*OutputClassSet) *ClassManager {
	mgr := &ClassManager{sets: make(map[LabelSet]*OutputClassSet)}
	for _, set := range allSets {
		set.BuildNameIndexMap()
		mgr.sets[set.Style] = set
	}
	return mgr
}

// GetName returns the class name for a given label set and index.
func (m *ClassManager) GetName(style LabelSet, idx int) (string, error) {
	set, ok := m.sets[style]
	if !ok {
		return "", errors.Wrapf(ErrUnknownLabelSet, "%q", style)
	}
	if idx < 0 || idx >= len(set.Classes) {
		return "", errors.Errorf("index %d out of range for label set %q", idx, style)
	}
	return set.Classes[idx].Name, nil
}

// GetIndex returns the class index for a given label set and name.
func (m *ClassManager) GetIndex(style LabelSet, name string) (int, error) {
	set, ok := m.sets[style]
	if !ok {
		return -1, errors.Wrapf(ErrUnknownLabelSet, "%q", style)
	}
	idx, ok := set.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found in label set %q", name, style)
	}
	return idx, nil
}

// MapClass maps an index from one label set to another, returning the target OutputClass.
//
// Arguments:
//   - fromStyle: The label set idx belongs to.
//   - idx: The class index.
//   - toStyle: The label set to translate into.
//
// Returns:
//   - OutputClass: The class with the same name in toStyle.
//   - error: An error if either set is unknown or the name has no counterpart.
func (m *ClassManager) MapClass(fromStyle LabelSet, idx int, toStyle LabelSet) (OutputClass, error) {
	name, err := m.GetName(fromStyle, idx)
	if err != nil {
		return OutputClass{}, err
	}
	toIdx, err := m.GetIndex(toStyle, name)
	if err != nil {
		return OutputClass{}, err
	}
	return OutputClass{Index: toIdx, Name: name}, nil
}

// COCOClasses is the 80 COCO classes. YOLO models index directly into this zero-based list.
var COCOClasses = OutputClassSet{
	Style: LabelSetCOCO,
	Classes: []OutputClass{
		{0, "person"},
		{1, "bicycle"},
		{2, "car"},
		{3, "motorcycle"},
		{4, "airplane"},
		{5, "bus"},
		{6, "train"},
		{7, "truck"},
		{8, "boat"},
		{9, "traffic light"},
		{10, "fire hydrant"},
		{11, "stop sign"},
		{12, "parking meter"},
		{13, "bench"},
		{14, "bird"},
		{15, "cat"},
		{16, "dog"},
		{17, "horse"},
		{18, "sheep"},
		{19, "cow"},
		{20, "elephant"},
		{21, "bear"},
		{22, "zebra"},
		{23, "giraffe"},
		{24, "backpack"},
		{25, "umbrella"},
		{26, "handbag"},
		{27, "tie"},
		{28, "suitcase"},
		{29, "frisbee"},
		{30, "skis"},
		{31, "snowboard"},
		{32, "sports ball"},
		{33, "kite"},
		{34, "baseball bat"},
		{35, "baseball glove"},
		{36, "skateboard"},
		{37, "surfboard"},
		{38, "tennis racket"},
		{39, "bottle"},
		{40, "wine glass"},
		{41, "cup"},
		{42, "fork"},
		{43, "knife"},
		{44, "spoon"},
		{45, "bowl"},
		{46, "banana"},
		{47, "apple"},
		{48, "sandwich"},
		{49, "orange"},
		{50, "broccoli"},
		{51, "carrot"},
		{52, "hot dog"},
		{53, "pizza"},
		{54, "donut"},
		{55, "cake"},
		{56, "chair"},
		{57, "couch"},
		{58, "potted plant"},
		{59, "bed"},
		{60, "dining table"},
		{61, "toilet"},
		{62, "tv"},
		{63, "laptop"},
		{64, "mouse"},
		{65, "remote"},
		{66, "keyboard"},
		{67, "cell phone"},
		{68, "microwave"},
		{69, "oven"},
		{70, "toaster"},
		{71, "sink"},
		{72, "refrigerator"},
		{73, "book"},
		{74, "clock"},
		{75, "vase"},
		{76, "scissors"},
		{77, "teddy bear"},
		{78, "hair drier"},
		{79, "toothbrush"},
	},
}

// PascalVOCClasses is the 20 Pascal VOC classes, zero-based.
var PascalVOCClasses = OutputClassSet{
	Style: LabelSetVOC,
	Classes: []OutputClass{
		{0, "aeroplane"},
		{1, "bicycle"},
		{2, "bird"},
		{3, "boat"},
		{4, "bottle"},
		{5, "bus"},
		{6, "car"},
		{7, "cat"},
		{8, "chair"},
		{9, "cow"},
		{10, "diningtable"},
		{11, "dog"},
		{12, "horse"},
		{13, "motorbike"},
		{14, "person"},
		{15, "pottedplant"},
		{16, "sheep"},
		{17, "sofa"},
		{18, "train"},
		{19, "tvmonitor"},
	},
}

// AllClassSets collects every built-in OutputClassSet.
var AllClassSets = []OutputClassSet{
	COCOClasses,
	PascalVOCClasses,
}

// LookupName returns the class name for a given label set and index.
// If index is out of range, it returns an empty string.
func LookupName(style LabelSet, idx int) string {
	for _, set := range AllClassSets {
		if set.Style == style {
			if idx >= 0 && idx < len(set.Classes) {
				return set.Classes[idx].Name
			}
			return ""
		}
	}
	return ""
}

// LookupSet returns the built-in label set with the given name.
func LookupSet(style LabelSet) (OutputClassSet, error) {
	for _, set := range AllClassSets {
		if set.Style == style {
			return set, nil
		}
	}
	return OutputClassSet{}, errors.Wrapf(ErrUnknownLabelSet, "%q", style)
}

// SetForClassCount returns the built-in label set with exactly numClasses entries.
func SetForClassCount(numClasses int) (OutputClassSet, bool) {
	for _, set := range AllClassSets {
		if len(set.Classes) == numClasses {
			return set, true
		}
	}
	return OutputClassSet{}, false
}
