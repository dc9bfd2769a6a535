package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：文档 version 已被其他写入推进
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")
