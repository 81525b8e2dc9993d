package beep

import "testing"

func TestDisabledChimesReturnImmediately(t *testing.T) {
	Disable()
	c := Chimes{}
	c.Arrive()
	c.Depart()
	c.Error()
	if !disabled.Load() {
		t.Fatal("Disable did not stick")
	}
}

func TestRenderSingle(t *testing.T) {
	tn := &tone{freq: 1000, length: 0.1, volume: 0.5, decay: 10, repeats: 1}
	pcm := tn.render(8000)
	if len(pcm) != 800 {
		t.Fatalf("len = %d, want 800", len(pcm))
	}
	var peak int16
	for _, s := range pcm {
		peak = max(peak, s)
	}
	if peak > 16384 || peak < 10000 {
		t.Errorf("peak = %d, want about half scale", peak)
	}
}

func TestRenderRepeatsWithGap(t *testing.T) {
	tn := &tone{freq: 350, length: 0.01, gap: 0.005, volume: 1, decay: 0, repeats: 2}
	pcm := tn.render(8000)
	if len(pcm) != 80+40+80 {
		t.Fatalf("len = %d", len(pcm))
	}
	for i := 80; i < 120; i++ {
		if pcm[i] != 0 {
			t.Fatalf("gap sample %d = %d", i, pcm[i])
		}
	}
}

func TestPCMIsCached(t *testing.T) {
	a := arrive.pcm()
	b := arrive.pcm()
	if len(a) == 0 || &a[0] != &b[0] {
		t.Error("pcm was rendered twice")
	}
}
