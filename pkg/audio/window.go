package audio

// Windower regroups variable-length capture chunks into fixed-size frames.
// It is the frame-processing stage of a capture pipeline: callers push chunks
// as they arrive and receive complete windows through the emit callback.
//
// Not safe for concurrent use; one Windower per stream.
type Windower struct {
	size       int
	sampleRate int
	buf        [][]float32
	seq        uint64
}

// NewWindower creates a Windower producing frames of size samples per channel.
// A non-positive size selects [DefaultFrameSize].
func NewWindower(f Format, size int) *Windower {
	if size <= 0 {
		size = DefaultFrameSize
	}
	channels := max(f.Channels, 1)
	buf := make([][]float32, channels)
	for c := range buf {
		buf[c] = make([]float32, 0, size)
	}
	return &Windower{size: size, sampleRate: f.SampleRate, buf: buf}
}

// Size returns the window length in samples per channel.
func (w *Windower) Size() int { return w.size }

// Buffered returns how many samples per channel are waiting for a full window.
func (w *Windower) Buffered() int { return len(w.buf[0]) }

// Push appends a chunk and calls emit once per completed window. Channels
// missing from the chunk are filled from channel 0; extra channels are ignored.
// A chunk with channels of unequal length is cut to the shortest one.
func (w *Windower) Push(c Chunk, emit func(Frame)) {
	n := c.Len()
	for _, src := range c.Samples {
		n = min(n, len(src))
	}
	if n == 0 {
		return
	}
	off := 0
	for off < n {
		take := min(w.size-len(w.buf[0]), n-off)
		for ch := range w.buf {
			src := c.Samples[0]
			if ch < len(c.Samples) {
				src = c.Samples[ch]
			}
			w.buf[ch] = append(w.buf[ch], src[off:off+take]...)
		}
		off += take
		if len(w.buf[0]) == w.size {
			emit(w.take())
		}
	}
}

// Flush emits the buffered remainder as a final short frame, if any.
func (w *Windower) Flush(emit func(Frame)) {
	if len(w.buf[0]) == 0 {
		return
	}
	emit(w.take())
}

func (w *Windower) take() Frame {
	channels := make([][]float32, len(w.buf))
	for ch := range w.buf {
		channels[ch] = w.buf[ch]
		w.buf[ch] = make([]float32, 0, w.size)
	}
	f := Frame{Channels: channels, SampleRate: w.sampleRate, Seq: w.seq}
	w.seq++
	return f
}
