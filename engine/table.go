package engine

// TableInstance holds funcref elements. A nil entry is an uninitialized
// slot; calling through it traps with an undefined table element.
type TableInstance struct {
	Elements []*FunctionInstance
	Min      uint32
	Max      *uint32
}

func newTableInstance(min uint32, max *uint32) *TableInstance {
	return &TableInstance{
		Elements: make([]*FunctionInstance, min),
		Min:      min,
		Max:      max,
	}
}
