package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	MIC-E position decoding.
 *
 * Description:	MIC-E crams a position report into the destination
 *		callsign plus a short binary payload.  Each of the six
 *		destination characters encodes one latitude digit along
 *		with one bit of side information:
 *
 *			char	digit	extra
 *			1-3	lat	message bit (A/B/C)
 *			4	lat	N/S
 *			5	lat	longitude +100 offset
 *			6	lat	E/W
 *
 *		Characters 0-9 carry the digit with the extra bit
 *		clear; P-Z carry it with the bit set; A-J (custom
 *		message encoding) also set it.  K, L and Z stand for a
 *		space (position ambiguity), which this decoder treats
 *		as zero.
 *
 *		The payload carries longitude degrees, minutes and
 *		hundredths, then speed and course, each biased by 28,
 *		then the symbol code and table.
 *
 * References:	APRS Protocol Reference 1.0.1 chapter 10.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"

	"github.com/golang/geo/s2"
)

// APRSMicE is a decoded MIC-E report.
type APRSMicE struct {
	ID          byte
	Pos         s2.LatLng
	CourseDeg   float64
	SpeedKnots  float64
	Status      string // one of the seven standard or custom messages
	Custom      bool
	SymbolTable byte
	SymbolCode  byte
	Comment     string
}

func (e *APRSMicE) DTI() byte { return e.ID }

var micEStdStatus = [8]string{
	"Emergency", "Priority", "Special", "Committed",
	"Returning", "In Service", "En Route", "Off Duty",
}

var micECustomStatus = [8]string{
	"Emergency", "Custom-6", "Custom-5", "Custom-4",
	"Custom-3", "Custom-2", "Custom-1", "Custom-0",
}

// micEDestChar unpacks one destination character into its latitude
// digit, its flag bit, and whether the character is from the custom set.
func micEDestChar(c byte) (digit int, bit bool, custom bool, err error) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), false, false, nil
	case c == 'L':
		return 0, false, false, nil // space, ambiguity
	case c >= 'A' && c <= 'J':
		return int(c - 'A'), true, true, nil
	case c == 'K':
		return 0, true, true, nil // space, ambiguity
	case c >= 'P' && c <= 'Y':
		return int(c - 'P'), true, false, nil
	case c == 'Z':
		return 0, true, false, nil // space, ambiguity
	}
	return 0, false, false, fmt.Errorf("%w: MIC-E destination char %q", ErrMalformedAPRSFrame, c)
}

// parseMicE reconstructs the position from the destination address and
// the payload.
func parseMicE(dst Callsign, p []byte) (APRSPayload, error) {
	if len(p) < 9 {
		return nil, fmt.Errorf("%w: MIC-E payload too short", ErrMalformedAPRSFrame)
	}

	var base = dst.paddedBase()
	var digits [6]int
	var bits [6]bool
	var custom bool
	for i := 0; i < 6; i++ {
		var d, b, cu, err = micEDestChar(base[i])
		if err != nil {
			return nil, err
		}
		digits[i], bits[i] = d, b
		custom = custom || cu
	}

	var e = &APRSMicE{ID: p[0], Custom: custom}

	// Message from the A/B/C bits of the first three characters.
	var msg = 0
	for i := 0; i < 3; i++ {
		if bits[i] {
			msg |= 4 >> i
		}
	}
	if custom {
		e.Status = micECustomStatus[msg]
	} else {
		e.Status = micEStdStatus[msg]
	}

	// Latitude ddmm.hh from the six digits.
	var lat = float64(digits[0]*10+digits[1]) +
		(float64(digits[2]*10+digits[3]) + float64(digits[4]*10+digits[5])/100) / 60
	if !bits[3] { // char 4: set = north
		lat = -lat
	}

	// Longitude from the payload, biased by 28.
	var d = int(p[1]) - 28
	if bits[4] { // char 5: +100 offset
		d += 100
	}
	switch {
	case d >= 180 && d <= 189:
		d -= 80
	case d >= 190 && d <= 199:
		d -= 190
	}

	var m = int(p[2]) - 28
	if m >= 60 {
		m -= 60
	}
	var h = int(p[3]) - 28
	if d > 180 || m > 59 || h > 99 || d < 0 || m < 0 || h < 0 {
		return nil, fmt.Errorf("%w: MIC-E longitude out of range", ErrMalformedAPRSFrame)
	}

	var lng = float64(d) + (float64(m)+float64(h)/100)/60
	if bits[5] { // char 6: set = west
		lng = -lng
	}
	e.Pos = s2.LatLngFromDegrees(lat, lng)

	// Speed and course, also biased by 28.
	var sp = int(p[4]) - 28
	var dc = int(p[5]) - 28
	var se = int(p[6]) - 28
	if sp < 0 || dc < 0 || se < 0 {
		return nil, fmt.Errorf("%w: MIC-E speed/course out of range", ErrMalformedAPRSFrame)
	}

	var speed = sp*10 + dc/10
	var course = (dc%10)*100 + se
	if speed >= 800 {
		speed -= 800
	}
	if course >= 400 {
		course -= 400
	}
	e.SpeedKnots = float64(speed)
	e.CourseDeg = float64(course)

	e.SymbolCode = p[7]
	e.SymbolTable = p[8]
	if len(p) > 9 {
		e.Comment = string(p[9:])
	}
	return e, nil
}
