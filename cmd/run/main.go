package main

import (
	"log"

	"github.com/zintix-labs/gachalab/sdk/perf"
)

func main() {
	bindVar()
	if err := perf.RunPProf(executeSimulator, cfg.pprofmode, ""); err != nil {
		log.Fatal(err)
	}
}
