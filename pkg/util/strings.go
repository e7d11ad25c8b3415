package util

import "strings"

// Slugify lowercases each part, collapses runs of non-alphanumerics into a
// single '-', trims dashes at the ends and joins the parts with '-'.
func Slugify(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		var b strings.Builder
		dash := false
		for _, r := range strings.ToLower(p) {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				if dash && b.Len() > 0 {
					b.WriteByte('-')
				}
				dash = false
				b.WriteRune(r)
				continue
			}
			dash = true
		}
		out = append(out, b.String())
	}
	return strings.Join(out, "-")
}
