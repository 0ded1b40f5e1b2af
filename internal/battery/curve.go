package battery

// Point maps a cell voltage to a state of charge.
type Point struct {
	Millivolts uint16
	Percent    uint8
}

// Curve is a discharge curve sorted by descending voltage.
type Curve []Point

// LiPoCurve approximates a single-cell lithium polymer battery under a
// light load.
var LiPoCurve = Curve{
	{4200, 100},
	{4160, 99},
	{4090, 91},
	{4030, 78},
	{3890, 63},
	{3830, 53},
	{3680, 36},
	{3660, 35},
	{3480, 14},
	{3420, 11},
	{3150, 1},
	{0, 0},
}

// Percent interpolates linearly between the points around mv.
func (c Curve) Percent(mv uint16) uint8 {
	if len(c) == 0 {
		return 0
	}
	if mv >= c[0].Millivolts {
		return c[0].Percent
	}
	for i := 1; i < len(c); i++ {
		hi, lo := c[i-1], c[i]
		if mv < lo.Millivolts {
			continue
		}
		span := uint32(hi.Millivolts - lo.Millivolts)
		if span == 0 {
			return lo.Percent
		}
		rise := uint32(hi.Percent - lo.Percent)
		return lo.Percent + uint8(uint32(mv-lo.Millivolts)*rise/span)
	}
	return c[len(c)-1].Percent
}
