package shortlink

import (
	"errors"
	"fmt"
)

// Store 层的哨兵错误，由具体实现用 %w 包装后返回。
var (
	ErrConflict = errors.New("short id already exists")
	ErrNotFound = errors.New("short id not found")
)

// Kind 区分失败类型，调用方按 Kind 做分支，而不是按错误字符串。
type Kind uint8

const (
	KindUnknown Kind = iota
	// 输入不合法
	KindValidation
	// 短码已存在或为保留字
	KindNamingConflict
	// 存储读写失败
	KindPersistence
	// 生成器用完了尝试次数
	KindAllocation
	// 短码不存在
	KindNotFound
	// 网盘没有返回上传地址
	KindUploadSlot
	// 上传文件内容失败
	KindTransfer
	// 网盘没有返回下载地址
	KindDownloadLink
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNamingConflict:
		return "naming_conflict"
	case KindPersistence:
		return "persistence"
	case KindAllocation:
		return "allocation"
	case KindNotFound:
		return "not_found"
	case KindUploadSlot:
		return "upload_slot"
	case KindTransfer:
		return "transfer"
	case KindDownloadLink:
		return "download_link"
	default:
		return "unknown"
	}
}

// Error carries a Kind together with the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap is newError for other packages (upload steps map provider failures onto kinds).
func Wrap(kind Kind, op string, err error) error {
	return newError(kind, op, err)
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
