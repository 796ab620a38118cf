package safetensors

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tensors := []Tensor{
		{Name: "voice_embedding", Shape: []int{1, 2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
		{Name: "aux", Shape: []int{2}, Data: []float32{-1.5, 0.25}},
	}
	data, err := Encode(tensors)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("len(decoded) = %d, want 2", len(decoded))
	}

	byName := map[string]Tensor{}
	for _, tn := range decoded {
		byName[tn.Name] = tn
	}

	voice, ok := byName["voice_embedding"]
	if !ok {
		t.Fatalf("voice_embedding missing from decoded tensors")
	}
	if len(voice.Shape) != 3 || voice.Shape[0] != 1 || voice.Shape[1] != 2 || voice.Shape[2] != 3 {
		t.Fatalf("voice_embedding shape = %v", voice.Shape)
	}
	for i, want := range []float32{1, 2, 3, 4, 5, 6} {
		if voice.Data[i] != want {
			t.Fatalf("voice_embedding.Data[%d] = %v, want %v", i, voice.Data[i], want)
		}
	}
}

func TestEncodeRejectsShapeMismatch(t *testing.T) {
	_, err := Encode([]Tensor{{Name: "bad", Shape: []int{2, 2}, Data: []float32{1, 2, 3}}})
	if err == nil {
		t.Fatalf("expected error for shape/data length mismatch")
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated input")
	}
}

func TestFirstReturnsOkFalseOnEmpty(t *testing.T) {
	if _, ok := First(nil); ok {
		t.Fatalf("First(nil) ok = true, want false")
	}
}
