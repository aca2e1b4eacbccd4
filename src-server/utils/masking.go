package utils

// MaskKey hides all but the first and last 4 characters of a secret.
func MaskKey(key string) string {
	if key == "" {
		return "<empty>"
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
