// Package testutil provides stub trainer programs for tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const argParser = `#!/bin/sh
while [ $# -gt 0 ]; do
	case "$1" in
		--epochs) EPOCHS="$2"; shift 2 ;;
		--batch-size) BATCH="$2"; shift 2 ;;
		--output-dir) OUT="$2"; shift 2 ;;
		--model-name) NAME="$2"; shift 2 ;;
		*) shift ;;
	esac
done
`

// WriteScript writes an executable shell script with the given body after the
// standard trainer argument parser, and returns the command to run it.
func WriteScript(t testing.TB, body string) []string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trainer.sh")
	if err := os.WriteFile(path, []byte(argParser+body), 0o755); err != nil {
		t.Fatalf("write stub trainer: %v", err)
	}
	return []string{"/bin/sh", path}
}

// SucceedingTrainer writes both model files and a metrics file reporting
// testAccuracy, then exits 0.
func SucceedingTrainer(t testing.TB, testAccuracy float64) []string {
	t.Helper()
	return WriteScript(t, fmt.Sprintf(`mkdir -p "$OUT"
echo "Epoch 1/$EPOCHS"
printf 'keras' > "$OUT/$NAME.keras"
printf 'tflite' > "$OUT/$NAME.tflite"
cat > "$OUT/${NAME}_metrics.json" <<JSON
{
  "epochs": $EPOCHS,
  "batch_size": $BATCH,
  "train_time_sec": 1.5,
  "final_train_accuracy": 0.91,
  "final_val_accuracy": 0.89,
  "test_loss": 0.31,
  "test_accuracy": %g,
  "keras_model_path": "$OUT/$NAME.keras",
  "tflite_model_path": "$OUT/$NAME.tflite",
  "history": {"accuracy": [0.91], "val_accuracy": [0.89]}
}
JSON
`, testAccuracy))
}

// FailingTrainer writes stderrText to standard error and exits with code.
func FailingTrainer(t testing.TB, stderrText string, code int) []string {
	t.Helper()
	return WriteScript(t, fmt.Sprintf("printf '%%s' '%s' >&2\nexit %d\n", stderrText, code))
}
