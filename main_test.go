package main

import (
	"bytes"
	"image/png"
	"testing"
)

func TestAppIconIsEmbedded(t *testing.T) {
	icon := appIcon()
	if len(icon) == 0 {
		t.Fatalf("%s is not embedded", logoPath)
	}
	img, err := png.Decode(bytes.NewReader(icon))
	if err != nil {
		t.Fatalf("decode icon: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Errorf("icon size %dx%d", b.Dx(), b.Dy())
	}
	if buildMacOptions(icon).About.Icon == nil || buildLinuxOptions(icon).Icon == nil {
		t.Errorf("platform options dropped the icon")
	}
}
