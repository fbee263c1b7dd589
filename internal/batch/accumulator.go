package batch

// metricAccumulator folds integer readings keeping integer sums, so
// the result is independent of fold order and a re-run over the same
// window reproduces it exactly.
type metricAccumulator struct {
	sum   int64
	count int
	min   int
	max   int
}

func (a *metricAccumulator) add(value int) {
	if a.count == 0 {
		a.min = value
		a.max = value
	} else {
		if value < a.min {
			a.min = value
		}
		if value > a.max {
			a.max = value
		}
	}
	a.sum += int64(value)
	a.count++
}

// avg returns the mean of the folded values, or nil when none were seen.
func (a *metricAccumulator) avg() *float64 {
	if a.count == 0 {
		return nil
	}
	v := float64(a.sum) / float64(a.count)
	return &v
}

func (a *metricAccumulator) minValue() *int {
	if a.count == 0 {
		return nil
	}
	v := a.min
	return &v
}

func (a *metricAccumulator) maxValue() *int {
	if a.count == 0 {
		return nil
	}
	v := a.max
	return &v
}

// windowAccumulator folds every sample one location contributed to a
// batch window.
type windowAccumulator struct {
	traffic metricAccumulator
	aqi     metricAccumulator
	records int
}

func (w *windowAccumulator) addSample(traffic, aqi *int) {
	if traffic != nil {
		w.traffic.add(*traffic)
	}
	if aqi != nil {
		w.aqi.add(*aqi)
	}
	w.records++
}
