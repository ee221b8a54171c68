package bluetooth

import (
	"testing"

	"github.com/scipioni/mouse-controller/utils"
)

func TestEncodeReportClamping(t *testing.T) {
	tests := []struct {
		name      string
		prev, cur utils.Position
		wantDX    int8
		wantDY    int8
	}{
		{"within range", utils.Position{X: 10, Y: 10}, utils.Position{X: 30, Y: 5}, 20, -5},
		{"clamp positive x", utils.Position{X: 0, Y: 0}, utils.Position{X: 500, Y: 0}, 127, 0},
		{"clamp negative x", utils.Position{X: 500, Y: 0}, utils.Position{X: 0, Y: 0}, -127, 0},
		{"clamp positive y", utils.Position{X: 0, Y: 0}, utils.Position{X: 0, Y: 128}, 0, 127},
		{"clamp negative y", utils.Position{X: 0, Y: 1000}, utils.Position{X: 0, Y: 0}, 0, -127},
		{"boundary 127", utils.Position{X: 0, Y: 0}, utils.Position{X: 127, Y: -127}, 127, -127},
		{"boundary 128 clamps", utils.Position{X: 0, Y: 0}, utils.Position{X: 128, Y: -128}, 127, -127},
	}

	for _, tt := range tests {
		report := EncodeReport(tt.prev, tt.cur, utils.Buttons{})
		if report.DX() != tt.wantDX {
			t.Errorf("%s: expected dx %d, got %d", tt.name, tt.wantDX, report.DX())
		}
		if report.DY() != tt.wantDY {
			t.Errorf("%s: expected dy %d, got %d", tt.name, tt.wantDY, report.DY())
		}
	}
}

func TestButtonMask(t *testing.T) {
	tests := []struct {
		name    string
		buttons utils.Buttons
		want    byte
	}{
		{"none", utils.Buttons{}, 0x00},
		{"left", utils.Buttons{Left: true}, 0x01},
		{"right", utils.Buttons{Right: true}, 0x02},
		{"middle", utils.Buttons{Middle: true}, 0x04},
		{"left+right", utils.Buttons{Left: true, Right: true}, 0x03},
		{"all", utils.Buttons{Left: true, Right: true, Middle: true}, 0x07},
	}

	for _, tt := range tests {
		report := EncodeReport(utils.Position{}, utils.Position{}, tt.buttons)
		if report[0] != tt.want {
			t.Errorf("%s: expected mask %#02x, got %#02x", tt.name, tt.want, report[0])
		}
		if report[0]&0xf8 != 0 {
			t.Errorf("%s: padding bits must stay zero, got %#02x", tt.name, report[0])
		}
	}
}

func TestEncodeReportRoundTrip(t *testing.T) {
	for _, delta := range []int{-127, -20, -1, 0, 1, 50, 127} {
		report := EncodeReport(utils.Position{}, utils.Position{X: delta, Y: delta}, utils.Buttons{})
		if int(report.DX()) != delta {
			t.Errorf("dx round trip: expected %d, got %d", delta, report.DX())
		}
		if int(report.DY()) != delta {
			t.Errorf("dy round trip: expected %d, got %d", delta, report.DY())
		}
	}
}

func TestEncodeReportWorkedExample(t *testing.T) {
	// (100,100) -> (250,80) with the left button held: dx 150 clamps to
	// 127, dy -20 encodes as 0xEC.
	report := EncodeReport(
		utils.Position{X: 100, Y: 100},
		utils.Position{X: 250, Y: 80},
		utils.Buttons{Left: true},
	)
	want := HIDReport{0x01, 0x7f, 0xec}
	if report != want {
		t.Errorf("expected report %#02x, got %#02x", want, report)
	}
}

func TestReportZero(t *testing.T) {
	if !(HIDReport{}).Zero() {
		t.Error("empty report should be zero")
	}
	if (HIDReport{0x01, 0, 0}).Zero() {
		t.Error("button-only report is not zero")
	}
	if (HIDReport{0, 1, 0}).Zero() {
		t.Error("movement report is not zero")
	}
}
