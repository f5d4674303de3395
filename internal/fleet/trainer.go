package fleet

import (
	_ "embed"
	"fmt"

	"github.com/danielgraviet/daytona-demo/internal/model"
)

//go:embed trainer.py
var trainerScript []byte

// TrainerScript is the control program uploaded into every sandbox. It has
// no remote-side dependencies, so no install step runs before it.
func TrainerScript() []byte {
	return trainerScript
}

func TrainCommand(remotePath string, spec model.UnitSpec, episodes int) string {
	return fmt.Sprintf("python3 %s %s %d %g", remotePath, spec.ID, episodes, spec.Param)
}
