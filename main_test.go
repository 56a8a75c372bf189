package main

import "testing"

func TestMetadataPath(t *testing.T) {

	cases := []struct {
		data, want string
	}{
		{"sample_survival_data.csv", "sample_survival_data_metadata.csv"},
		{"out/surv.csv", "out/surv_metadata.csv"},
		{"table", "table_metadata"},
	}

	for _, c := range cases {
		if got := metadataPath(c.data); got != c.want {
			t.Errorf("metadataPath(%q) = %q, want %q", c.data, got, c.want)
		}
	}
}
