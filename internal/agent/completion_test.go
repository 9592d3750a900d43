package agent

import "testing"

func TestIsCompletion(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{"Task complete.", true},
		{"The task completed successfully.", true},
		{"All done!", true},
		{"I have FINISHED the work.", true},
		{"", false},
		{"still working on it", false},
		{"there is more to do", false},
		// Known false positive of substring matching, kept on purpose.
		{"the download is not done yet", true},
	}
	for _, tc := range cases {
		if got := isCompletion(tc.content); got != tc.want {
			t.Errorf("isCompletion(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}
