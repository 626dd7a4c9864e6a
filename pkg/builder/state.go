package builder

// State is a step of an image build. A builder moves through the states in order, each exactly once.
type State int

const (
	StateInit State = iota
	StateCompose
	StateAllocate
	StateWriteDescriptors
	StateWriteBootCatalog
	StateWriteDirectories
	StateCopyFileData
	StateFinalize
	StateWriteHybridStructures
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateCompose:
		return "Compose"
	case StateAllocate:
		return "Allocate"
	case StateWriteDescriptors:
		return "WriteDescriptors"
	case StateWriteBootCatalog:
		return "WriteBootCatalog"
	case StateWriteDirectories:
		return "WriteDirectories"
	case StateCopyFileData:
		return "CopyFileData"
	case StateFinalize:
		return "Finalize"
	case StateWriteHybridStructures:
		return "WriteHybridStructures"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
