// Demo of the Finger environment. Runs episodes of a configured finger
// task with a uniform random policy and reports the return of each
// episode.
//
// An optional command line argument names a YAML configuration file:
//
//	go run . configs/spin.yaml
package main

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/gofinger/environment/box2d/fingersim"
	"github.com/samuelfneumann/gofinger/environment/envconfig"
	"github.com/samuelfneumann/gofinger/utils/progressbar"
)

const episodes int = 10

func main() {
	var seed uint64 = 192382

	config := envconfig.Default(seed)
	if len(os.Args) > 1 {
		var err error
		config, err = envconfig.Load(os.Args[1])
		if err != nil {
			log.Fatal(err)
		}
	}

	env, step, err := config.Create(fingersim.New())
	if err != nil {
		log.Fatal(err)
	}

	// Uniform random policy over the continuous action space
	uniform := distuv.Uniform{
		Min: -1.0,
		Max: 1.0,
		Src: rand.NewSource(seed),
	}
	numActions := env.ActionSpec().Shape.Len()

	returns := make([]float64, episodes)
	bar := progressbar.New(50, episodes)

	for episode := 0; episode < episodes; episode++ {
		episodeReturn := 0.0

		for !step.Last() {
			action := mat.NewVecDense(numActions, nil)
			for i := 0; i < numActions; i++ {
				action.SetVec(i, uniform.Rand())
			}

			step, _, err = env.Step(action)
			if err != nil {
				log.Fatal(err)
			}
			episodeReturn += step.Reward
		}

		returns[episode] = episodeReturn
		bar.Increment(fmt.Sprintf("return: %.1f", episodeReturn))

		step, err = env.Reset()
		if err != nil {
			log.Fatal(err)
		}
	}
	bar.Close()

	fmt.Printf("Task %v returns over %v episodes: %v\n", config.Task,
		episodes, returns)
}
