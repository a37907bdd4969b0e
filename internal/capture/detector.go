package capture

// silenceDetector counts consecutive silent samples at frame granularity. It
// fires once when the run reaches the window and re-arms on the next frame
// holding a sample above the threshold. It is only touched by the capture
// thread, and by Start while the stream is stopped.
type silenceDetector struct {
	threshold int32
	window    int
	run       int
	signaled  bool
}

func newSilenceDetector(threshold, window int) silenceDetector {
	return silenceDetector{threshold: int32(threshold), window: window}
}

func (d *silenceDetector) reset() {
	d.run = 0
	d.signaled = false
}

// observe reports whether this frame completes a silent stretch.
func (d *silenceDetector) observe(samples []int16) bool {
	for _, s := range samples {
		v := int32(s)
		if v > d.threshold || v < -d.threshold {
			d.reset()
			return false
		}
	}
	if d.signaled {
		return false
	}
	d.run += len(samples)
	if d.run < d.window {
		return false
	}
	d.signaled = true
	return true
}
