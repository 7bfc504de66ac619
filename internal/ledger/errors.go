package ledger

import "errors"

// 余额操作的错误分类。调用方用 errors.Is 判断类别，
// 全部属于可恢复错误：回滚事务并向用户提示即可，不应导致进程退出。
var (
	// ErrValidation 入参形状/范围非法（非正的授予数量、日期格式错误、备注超长等）。
	ErrValidation = errors.New("validation error")

	// ErrNotFound 客户/计划/车辆/台账记录不存在。
	ErrNotFound = errors.New("not found")

	// ErrOwnership 实体归属于其他客户。
	ErrOwnership = errors.New("belongs to a different customer")

	// ErrInsufficientBalance 余额为零或负数时尝试扣减。
	ErrInsufficientBalance = errors.New("no remaining oil changes")

	// ErrNoActivePlan 找不到可以承接余额回退的 active 计划。
	ErrNoActivePlan = errors.New("active plan not found")
)
