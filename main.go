package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/firmsocial/firm/app"
	"github.com/firmsocial/firm/util"
)

func main() {
	versionFlag := flag.Bool("v", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("firm v%s\n", util.GetVersion())
		os.Exit(0)
	}

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	// Setup logging (journald if enabled, otherwise standard logging)
	util.SetupLogging(conf.Conf.WithJournald)

	log.Printf("%s", util.GetNameAndVersion())
	log.Printf("Serving tenants: %v", conf.Conf.Tenants)

	application, err := app.New(conf)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Initialize(); err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	if err := application.Start(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
