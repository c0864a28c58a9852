// Command tdbf inspects and maintains dBase table files.
//
//	tdbf dump table.dbf [more.dbf ...]    print live records as JSON lines
//	tdbf vacuum table.dbf [more.dbf ...]  compact tables in place
//
// Flags can also be given through TDBF_* environment variables or an
// optional config file.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pawelsalawa/tdbf/tdbf"
)

func main() {
	flags := pflag.NewFlagSet("tdbf", pflag.ExitOnError)
	flags.Bool("debug", false, "enable debug logging")
	flags.Int("jobs", 4, "number of files processed concurrently")
	flags.String("config", "", "path to a config file")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: tdbf [flags] dump|vacuum file.dbf [file.dbf ...]")
		flags.PrintDefaults()
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		fatal(err)
	}
	v := viper.New()
	v.SetEnvPrefix("TDBF")
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		fatal(err)
	}
	if cfg := v.GetString("config"); cfg != "" {
		v.SetConfigFile(cfg)
		if err := v.ReadInConfig(); err != nil {
			fatal(err)
		}
	}
	tdbf.SetDebug(v.GetBool("debug"))

	args := flags.Args()
	if len(args) < 2 {
		flags.Usage()
		os.Exit(2)
	}
	command, files := args[0], args[1:]

	var group errgroup.Group
	group.SetLimit(v.GetInt("jobs"))
	var stdout sync.Mutex
	for _, file := range files {
		file := file
		group.Go(func() error {
			switch command {
			case "dump":
				return dump(file, &stdout)
			case "vacuum":
				return vacuum(file)
			default:
				return fmt.Errorf("unknown command %q", command)
			}
		})
	}
	if err := group.Wait(); err != nil {
		fatal(err)
	}
}

// dump prints every live record of one table as a JSON line. Output is
// buffered per table so concurrent dumps do not interleave.
func dump(file string, stdout *sync.Mutex) error {
	table, err := tdbf.OpenTable(&tdbf.Config{Filename: file})
	if err != nil {
		return err
	}
	defer table.Close()
	var lines []byte
	err = table.ForEach(func(record map[string]interface{}) error {
		line, err := json.Marshal(record)
		if err != nil {
			return err
		}
		lines = append(lines, line...)
		lines = append(lines, '\n')
		return nil
	})
	if err != nil {
		return err
	}
	stdout.Lock()
	defer stdout.Unlock()
	w := bufio.NewWriter(os.Stdout)
	if _, err := w.Write(lines); err != nil {
		return err
	}
	return w.Flush()
}

func vacuum(file string) error {
	table, err := tdbf.OpenTable(&tdbf.Config{Filename: file})
	if err != nil {
		return err
	}
	defer table.Close()
	before := table.Header().RecordsCount
	if err := table.Vacuum(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s: %d -> %d records\n", file, before, table.Header().RecordsCount)
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "tdbf:", err)
	os.Exit(1)
}
