package sound

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/ebitengine/oto/v3"
	meltysynth "github.com/sinshu/go-meltysynth/meltysynth"
	"go.uber.org/multierr"
)

const (
	SampleRate = 44100
	channels   = 2
	channel    = 0
)

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// audioContext returns the process-wide output context; oto allows only one.
func audioContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// Synth renders voices from a SoundFont and streams them to the audio device
type Synth struct {
	mu       sync.Mutex
	synth    *meltysynth.Synthesizer
	programs Catalogue
	player   *oto.Player
	left     []float32
	right    []float32
}

// OpenSynth loads a SoundFont from path and starts audio output. Errors wrap
// ErrUnavailable so callers can fall back to Silent.
func OpenSynth(path string) (*Synth, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer f.Close()
	return NewSynth(f)
}

// NewSynth builds a synth from SoundFont data
func NewSynth(r io.Reader) (*Synth, error) {
	sf, err := meltysynth.NewSoundFont(r)
	if err != nil {
		return nil, fmt.Errorf("%w: soundfont: %w", ErrUnavailable, err)
	}
	settings := meltysynth.NewSynthesizerSettings(SampleRate)
	synth, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("%w: synthesizer: %w", ErrUnavailable, err)
	}

	programs := make([]Program, 0, len(sf.Presets))
	for _, p := range sf.Presets {
		programs = append(programs, Program{
			Bank:   int(p.BankNumber),
			Preset: int(p.PatchNumber),
			Name:   p.Name,
		})
	}

	s := &Synth{synth: synth, programs: NewCatalogue(programs)}

	ctx, err := audioContext()
	if err != nil {
		return nil, fmt.Errorf("%w: audio device: %w", ErrUnavailable, err)
	}
	s.player = ctx.NewPlayer(s)
	s.player.Play()
	return s, nil
}

// Read renders interleaved float32 stereo frames for the audio player
func (s *Synth) Read(p []byte) (int, error) {
	frames := len(p) / (4 * channels)
	if frames == 0 {
		return 0, nil
	}

	s.mu.Lock()
	if cap(s.left) < frames {
		s.left = make([]float32, frames)
		s.right = make([]float32, frames)
	}
	left, right := s.left[:frames], s.right[:frames]
	s.synth.Render(left, right)
	s.mu.Unlock()

	for i := range frames {
		binary.LittleEndian.PutUint32(p[i*8:], math.Float32bits(left[i]))
		binary.LittleEndian.PutUint32(p[i*8+4:], math.Float32bits(right[i]))
	}
	return frames * 4 * channels, nil
}

func (s *Synth) check() error {
	if s.player == nil {
		return nil
	}
	if err := s.player.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *Synth) NoteOn(pitch, velocity int) error {
	s.mu.Lock()
	s.synth.NoteOn(channel, int32(pitch), int32(velocity))
	s.mu.Unlock()
	return s.check()
}

func (s *Synth) NoteOff(pitch int) error {
	s.mu.Lock()
	s.synth.NoteOff(channel, int32(pitch))
	s.mu.Unlock()
	return s.check()
}

// SelectProgram sends bank select and program change. Voices already
// sounding keep the regions they started with.
func (s *Synth) SelectProgram(bank, preset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synth.ProcessMidiMessage(channel, 0xB0, 0x00, int32(bank))
	s.synth.ProcessMidiMessage(channel, 0xC0, int32(preset), 0)
	return nil
}

func (s *Synth) SetVolume(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synth.MasterVolume = float32(v)
	return nil
}

func (s *Synth) AllNotesOff() error {
	s.mu.Lock()
	s.synth.NoteOffAll(false)
	s.mu.Unlock()
	return s.check()
}

func (s *Synth) Programs() Catalogue {
	return s.programs
}

func (s *Synth) Close() error {
	var err error
	if s.player != nil {
		s.player.Pause()
		err = multierr.Append(err, s.player.Err())
		err = multierr.Append(err, s.player.Close())
		s.player = nil
	}
	return err
}
