package bluetooth

import "github.com/scipioni/mouse-controller/utils"

// HIDReport is one 3-byte mouse input report matching the report
// descriptor: button mask, then relative X and Y as signed 8-bit values.
type HIDReport [3]byte

// EncodeReport builds the report for the movement between two consecutive
// samples. Deltas beyond one report's range are clamped to plus/minus 127,
// never wrapped and never split across ticks. Total over all inputs.
func EncodeReport(prev, cur utils.Position, buttons utils.Buttons) HIDReport {
	dx := clampDelta(cur.X - prev.X)
	dy := clampDelta(cur.Y - prev.Y)
	return HIDReport{buttonMask(buttons), byte(dx), byte(dy)}
}

// buttonMask packs the descriptor's declared bit order: bit 0 button 1
// (left), bit 1 button 2 (right), bit 2 button 3 (middle). The remaining
// five bits are constant padding and stay zero.
func buttonMask(b utils.Buttons) byte {
	var mask byte
	if b.Left {
		mask |= 0x01
	}
	if b.Right {
		mask |= 0x02
	}
	if b.Middle {
		mask |= 0x04
	}
	return mask
}

func clampDelta(d int) int8 {
	if d > 127 {
		return 127
	}
	if d < -127 {
		return -127
	}
	return int8(d)
}

// Zero reports no movement and no pressed buttons. Zero reports are not
// worth sending or logging.
func (r HIDReport) Zero() bool {
	return r[0] == 0 && r[1] == 0 && r[2] == 0
}

// DX recovers the signed X delta from the wire encoding.
func (r HIDReport) DX() int8 { return int8(r[1]) }

// DY recovers the signed Y delta from the wire encoding.
func (r HIDReport) DY() int8 { return int8(r[2]) }
