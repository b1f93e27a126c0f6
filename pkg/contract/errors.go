package contract

import "errors"

// 最小错误分类（用于上层策略判定与日志分类）。
var (
	// ErrCorruptCheckpoint: 检查点文件存在但内容非法（不可解析/字段不一致）。
	// 致命：绝不静默重置，避免静默重复处理或静默漏行。
	ErrCorruptCheckpoint = errors.New("corrupt checkpoint")
	// ErrArtifactMismatch: 输出工件/源分片与检查点记录不一致（长度不足、记录缺失等）。
	ErrArtifactMismatch = errors.New("artifact mismatch")
	// ErrInvalidConfig: 配置非法（如 min_length > max_length），在处理任何行之前拒绝。
	ErrInvalidConfig = errors.New("invalid config")
	// ErrPathInvalid: 路径为空或无法映射为分片标识。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵，例如检查点回退）。
	ErrInvariantViolation = errors.New("invariant violation")
)
