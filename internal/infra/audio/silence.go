package audio

const silenceThreshold = int16(500)

func isSilent(frame []int16) bool {
	for _, sample := range frame {
		if sample > silenceThreshold || sample < -silenceThreshold {
			return false
		}
	}
	return true
}
