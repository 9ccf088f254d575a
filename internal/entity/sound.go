package entity

import (
	"context"
	"fmt"
	"math"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
	"github.com/tomas-wrobel/scrap-engine-sub002/internal/host"
)

// AddSound declares a sound asset of the entity.
func (e *Entity) AddSound(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sounds = append(e.sounds, name)
}

func (e *Entity) hasSound(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sounds {
		if s == name {
			return true
		}
	}
	return false
}

// PlaySound starts a sound without waiting for it.
func (e *Entity) PlaySound(name string) error {
	return e.runner.Interruptible(func(ctx context.Context) error {
		_, err := e.startSound(ctx, name)
		return err
	})
}

// PlaySoundUntilDone plays a sound and waits for its end. A stop ends the
// playback as well as the wait.
func (e *Entity) PlaySoundUntilDone(name string) error {
	return e.runner.Interruptible(func(ctx context.Context) error {
		pb, err := e.startSound(ctx, name)
		if err != nil {
			return err
		}
		select {
		case <-pb.Done():
			if ctx.Err() != nil {
				return core.ErrStop
			}
			return nil
		case <-ctx.Done():
			pb.Stop()
			return core.ErrStop
		}
	})
}

func (e *Entity) startSound(ctx context.Context, name string) (host.Playback, error) {
	if e.env.Audio == nil || !e.hasSound(name) {
		return nil, fmt.Errorf("%w: %s has no sound %q", core.ErrAsset, e.name, name)
	}
	e.mu.Lock()
	volume := e.volume
	e.mu.Unlock()

	pb, err := e.env.Audio.Play(ctx, name, volume)
	if err != nil {
		return nil, fmt.Errorf("%s: play %q: %w", e.name, name, err)
	}
	e.mu.Lock()
	id := e.nextAudio
	e.nextAudio++
	e.audios[id] = pb
	e.mu.Unlock()

	go func() {
		<-pb.Done()
		e.mu.Lock()
		delete(e.audios, id)
		e.mu.Unlock()
	}()
	// A stop that raced the start would otherwise leave the sound playing.
	if e.env.Token.Stopped() {
		pb.Stop()
	}
	return pb, nil
}

// StopAllSounds stops every sound of the entity one frame later.
func (e *Entity) StopAllSounds() error {
	return e.runner.Paced(func(ctx context.Context) error {
		e.stopSounds()
		return nil
	})
}

func (e *Entity) stopSounds() {
	e.mu.Lock()
	live := make([]host.Playback, 0, len(e.audios))
	for id, pb := range e.audios {
		live = append(live, pb)
		delete(e.audios, id)
	}
	e.mu.Unlock()
	for _, pb := range live {
		pb.Stop()
	}
}

// PlayingSounds returns the number of live playbacks.
func (e *Entity) PlayingSounds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.audios)
}

// SetVolume sets the volume in percent, clamped to [0, 100].
func (e *Entity) SetVolume(v float64) error {
	return e.runner.Paced(func(ctx context.Context) error {
		e.mu.Lock()
		e.volume = math.Max(0, math.Min(100, v))
		e.mu.Unlock()
		return nil
	})
}

// ChangeVolume adds delta to the volume.
func (e *Entity) ChangeVolume(delta float64) error {
	return e.runner.Paced(func(ctx context.Context) error {
		e.mu.Lock()
		e.volume = math.Max(0, math.Min(100, e.volume+delta))
		e.mu.Unlock()
		return nil
	})
}

// Volume returns the current volume.
func (e *Entity) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}
