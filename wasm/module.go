package wasm

// SectionID identifies a known section of the binary format. Sections other
// than custom ones must appear in ascending SectionID order.
type SectionID byte

const (
	SectionIDCustom   SectionID = 0
	SectionIDType     SectionID = 1
	SectionIDImport   SectionID = 2
	SectionIDFunction SectionID = 3
	SectionIDTable    SectionID = 4
	SectionIDMemory   SectionID = 5
	SectionIDGlobal   SectionID = 6
	SectionIDExport   SectionID = 7
	SectionIDStart    SectionID = 8
	SectionIDElement  SectionID = 9
	SectionIDCode     SectionID = 10
	SectionIDData     SectionID = 11
)

func (s SectionID) String() string {
	switch s {
	case SectionIDCustom:
		return "custom"
	case SectionIDType:
		return "type"
	case SectionIDImport:
		return "import"
	case SectionIDFunction:
		return "function"
	case SectionIDTable:
		return "table"
	case SectionIDMemory:
		return "memory"
	case SectionIDGlobal:
		return "global"
	case SectionIDExport:
		return "export"
	case SectionIDStart:
		return "start"
	case SectionIDElement:
		return "element"
	case SectionIDCode:
		return "code"
	case SectionIDData:
		return "data"
	}
	return "unknown"
}

// Module is the decoded representation of one WebAssembly binary. It is
// immutable after Validate succeeds; execution state lives in an Instance,
// never here.
type Module struct {
	TypeSection     []*FunctionType
	ImportSection   []*Import
	FunctionSection []uint32 // type index per module-defined function
	TableSection    []*TableType
	MemorySection   []*MemoryType
	GlobalSection   []*Global
	ExportSection   []*Export
	StartSection    *uint32
	ElementSection  []*ElementSegment
	CodeSection     []*Code
	DataSection     []*DataSegment

	// FunctionNames holds the function-name subsection of the "name" custom
	// section, keyed by function index, when present.
	FunctionNames map[uint32]string
	// CustomSections holds raw custom sections other than "name".
	CustomSections map[string][]byte

	// Metadata is filled by Validate, one entry per CodeSection entry.
	Metadata []*FunctionMetadata
}

// ImportFunctionCount returns how many functions the module imports. Imported
// functions occupy the lowest function indices.
func (m *Module) ImportFunctionCount() uint32 {
	var n uint32
	for _, imp := range m.ImportSection {
		if imp.Kind == ExternKindFunc {
			n++
		}
	}
	return n
}

// FunctionTypeIndexes returns the type index of every function in index
// space order: imported functions first, then module-defined ones.
func (m *Module) FunctionTypeIndexes() []uint32 {
	ret := make([]uint32, 0, int(m.ImportFunctionCount())+len(m.FunctionSection))
	for _, imp := range m.ImportSection {
		if imp.Kind == ExternKindFunc {
			ret = append(ret, imp.DescFunc)
		}
	}
	return append(ret, m.FunctionSection...)
}

// FunctionName returns the symbolic name of the function at the given index,
// preferring the name section, falling back to an export name, and finally
// the empty string.
func (m *Module) FunctionName(index uint32) string {
	if name, ok := m.FunctionNames[index]; ok {
		return name
	}
	for _, exp := range m.ExportSection {
		if exp.Kind == ExternKindFunc && exp.Index == index {
			return exp.Name
		}
	}
	return ""
}

func (m *Module) globalDeclarations() []*GlobalType {
	var ret []*GlobalType
	for _, imp := range m.ImportSection {
		if imp.Kind == ExternKindGlobal {
			ret = append(ret, imp.DescGlobal)
		}
	}
	for _, g := range m.GlobalSection {
		ret = append(ret, g.Type)
	}
	return ret
}

func (m *Module) memoryDeclarations() []*MemoryType {
	var ret []*MemoryType
	for _, imp := range m.ImportSection {
		if imp.Kind == ExternKindMemory {
			ret = append(ret, imp.DescMem)
		}
	}
	return append(ret, m.MemorySection...)
}

func (m *Module) tableDeclarations() []*TableType {
	var ret []*TableType
	for _, imp := range m.ImportSection {
		if imp.Kind == ExternKindTable {
			ret = append(ret, imp.DescTable)
		}
	}
	return append(ret, m.TableSection...)
}
