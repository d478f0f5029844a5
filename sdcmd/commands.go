package sdcmd

import "strconv"

// ResponseKind is the format of the reply a card sends to a command.
type ResponseKind uint8

const (
	// RespNone means the command expects no response. A response still
	// observed after such a command is decoded as a status response.
	RespNone         ResponseKind = iota
	RespStatus                    // R1, 48 bits.
	RespCIDOrCSD                  // R2, 136 bits.
	RespOCR                       // R3, 48 bits.
	RespReserved4                 // R4, FAST_IO.
	RespUnspecified5              // R5, IO_RW_DIRECT/IO_RW_EXTENDED and interrupt requests.
)

const (
	// FrameLength is the bit length of commands and every response but R2.
	FrameLength = 48
	// LongFrameLength is the bit length of an R2 response.
	LongFrameLength = 136
)

// Length returns the number of bits in a response of kind k.
func (k ResponseKind) Length() int {
	if k == RespCIDOrCSD {
		return LongFrameLength
	}
	return FrameLength
}

func (k ResponseKind) String() string {
	if k == RespNone {
		return "none"
	}
	return "R" + strconv.Itoa(int(k))
}

// Command indices that get special treatment by the decoder.
const (
	CmdGoIdleState   = 0
	CmdIORWDirect    = 52
	CmdIORWExtended  = 53
	maxCommandIndex  = 63
	unknownCmdString = "unknown"
)

type cmdInfo struct {
	name string
	resp ResponseKind
}

// commandTable holds the names and expected response of the SD/MMC/SDIO
// commands. Indices with an empty name are not defined.
var commandTable = [maxCommandIndex + 1]cmdInfo{
	// Basic commands (class 0 and class 1).
	0:  {"GO_IDLE_STATE", RespNone},
	1:  {"SEND_OP_COND", RespOCR},
	2:  {"ALL_SEND_CID", RespCIDOrCSD},
	3:  {"SET_RELATIVE_ADDR", RespStatus},
	4:  {"SET_DSR", RespNone},
	5:  {"SLEEP_AWAKE", RespStatus},
	6:  {"SWITCH", RespStatus},
	7:  {"SELECT_CARD", RespStatus},
	8:  {"SEND_EXT_CSD", RespStatus},
	9:  {"SEND_CSD", RespCIDOrCSD},
	10: {"SEND_CID", RespCIDOrCSD},
	11: {"obsolete", RespNone},
	12: {"STOP_TRANSMISSION", RespStatus},
	13: {"SEND_STATUS", RespStatus},
	14: {"BUSTEST_R", RespStatus},
	15: {"GO_INACTIVE_STATE", RespNone},
	19: {"BUSTEST_W", RespStatus},
	// Block-oriented read commands (class 2).
	16: {"SET_BLOCKLEN", RespStatus},
	17: {"READ_SINGLE_BLOCK", RespStatus},
	18: {"READ_MULTIPLE_BLOCK", RespStatus},
	21: {"SEND_TUNING_BLOCK", RespStatus},
	// Class 3.
	20: {"obsolete", RespNone},
	22: {"reserved", RespNone},
	// Block-oriented write commands (class 4).
	23: {"SET_BLOCK_COUNT", RespStatus},
	24: {"WRITE_BLOCK", RespStatus},
	25: {"WRITE_MULTIPLE_BLOCK", RespStatus},
	26: {"PROGRAM_CID", RespStatus},
	27: {"PROGRAM_CSD", RespStatus},
	49: {"SET_TIME", RespStatus},
	// Block-oriented write protection commands (class 6).
	28: {"SET_WRITE_PROT", RespStatus},
	29: {"CLR_WRITE_PROT", RespStatus},
	30: {"SEND_WRITE_PROT", RespStatus},
	31: {"SEND_WRITE_PROT_TYPE", RespStatus},
	// Erase commands (class 5).
	35: {"ERASE_GROUP_START", RespStatus},
	36: {"ERASE_GROUP_END", RespStatus},
	38: {"ERASE", RespStatus},
	// I/O mode commands (class 9).
	39: {"FAST_IO", RespReserved4},
	40: {"GO_IRQ_STATE", RespUnspecified5},
	// Lock device commands (class 7).
	42: {"LOCK_UNLOCK", RespStatus},
	// SDIO register access.
	52: {"IO_RW_DIRECT", RespUnspecified5},
	53: {"IO_RW_EXTENDED", RespUnspecified5},
	54: {"PROTOCOL_WR", RespStatus},
	// Application-specific commands (class 8).
	55: {"APP_CMD", RespStatus},
	56: {"GEN_CMD", RespStatus},
	// Command queues (class 11).
	44: {"QUEUED_TASK_PARAMS", RespStatus},
	45: {"QUEUED_TASK_ADDRESS", RespStatus},
	46: {"EXECUTE_READ_TASK", RespStatus},
	47: {"EXECUTE_WRITE_TASK", RespStatus},
	48: {"CMDQ_TASK_MGMT", RespStatus},
}

func lookup(index uint8) (cmdInfo, bool) {
	if int(index) >= len(commandTable) || commandTable[index].name == "" {
		return cmdInfo{name: unknownCmdString}, false
	}
	return commandTable[index], true
}

// CommandName returns the name of the command with the given index or
// "unknown" if the index is not defined.
func CommandName(index uint8) string {
	info, _ := lookup(index)
	return info.name
}

// ExpectedResponse returns the response kind the card answers the command
// with. Unknown commands return RespNone.
func ExpectedResponse(index uint8) ResponseKind {
	info, _ := lookup(index)
	return info.resp
}

// ResponseLength returns the bit length of a response of the given kind.
func ResponseLength(kind ResponseKind) int { return kind.Length() }

// currentStates are the names of the CURRENT_STATE field of the card status.
var currentStates = [...]string{
	0:  "IDLE",
	1:  "READY",
	2:  "IDENTIFICATION",
	3:  "STANDBY",
	4:  "TRANSFER",
	5:  "DATA",
	6:  "RECEIVE",
	7:  "PROGRAMMING",
	8:  "DISCONNECT",
	9:  "BUS TEST",
	10: "SLEEP",
}

// StatusFlags are the card status error bits in the order they are reported,
// starting at the most significant bit of the status word.
var StatusFlags = [...]string{
	"ADDRESS_OUT_OF_RANGE",
	"ADDRESS_MISALIGN",
	"BLOCK_LEN_ERROR",
	"ERASE_EQ_ERROR",
	"ERASE_PARAM",
	"WP_VIOLATION",
	"DEVICE_IS_LOCKED",
	"LOCK_UNLOCK_FAILED",
	"COM_CRC_ERROR",
	"ILLEGAL_COMMAND",
	"DEVICE_ECC_FAILED",
	"CC_ERROR",
	"ERROR",
}
