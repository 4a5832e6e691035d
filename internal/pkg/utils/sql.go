package utils

// BoolToInt maps bool to sqlite integer
func BoolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
