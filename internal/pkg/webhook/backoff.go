package webhook

// ComputeDelay returns the delay in seconds before the next processing
// attempt. With exponential backoff the delay doubles per retry
// (base * 2^retryCount); otherwise it stays constant. maxDelaySeconds
// caps the growth; 0 disables the cap.
func ComputeDelay(retryCount, baseDelaySeconds int, exponential bool, maxDelaySeconds int) int {
	if baseDelaySeconds <= 0 {
		return 0
	}
	if retryCount < 0 {
		retryCount = 0
	}

	delay := baseDelaySeconds
	if exponential {
		for i := 0; i < retryCount; i++ {
			delay *= 2
			if delay < 0 || (maxDelaySeconds > 0 && delay >= maxDelaySeconds) {
				// Overflow or past the cap; no point doubling further.
				delay = maxDelaySeconds
				if delay == 0 {
					delay = int(^uint(0) >> 1)
				}
				break
			}
		}
	}

	if maxDelaySeconds > 0 && delay > maxDelaySeconds {
		delay = maxDelaySeconds
	}
	return delay
}
