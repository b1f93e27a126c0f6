package contract

import (
	"path"
	"strings"
)

// NormalizePath 规范化路径，统一为跨平台稳定的正斜杠形式。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizePath(p string) string {
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// ShardIDFromPath 由分片文件路径派生 ShardID：基名去掉最后一个扩展名。
// 例如 "corpus/split/es.part-003.txt" → "es.part-003"。
func ShardIDFromPath(p string) (ShardID, error) {
	if strings.TrimSpace(p) == "" {
		return "", ErrPathInvalid
	}
	base := path.Base(NormalizePath(p))
	if base == "." || base == ".." || base == "/" {
		return "", ErrPathInvalid
	}
	// 隐藏文件（如 ".shard"）保持原名
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return ShardID(base), nil
}
