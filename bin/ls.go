package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-fsntfs/parser"
)

var (
	ls_command = app.Command(
		"ls", "List files.")

	ls_command_file_arg = ls_command.Arg(
		"file", "The image file to inspect",
	).Required().OpenFile(os.O_RDONLY, os.FileMode(0666))

	ls_command_arg = ls_command.Arg(
		"path", "The path to list or an MFT entry.",
	).Default("5").String()

	ls_command_image_offset = ls_command.Flag(
		"image_offset", "An offset into the file.",
	).Default("0").Int64()

	ls_command_best_effort = ls_command.Flag(
		"best_effort", "Skip entries which fail to parse.",
	).Bool()
)

func doLS() {
	options := parser.GetDefaultOptions()
	options.BestEffort = *ls_command_best_effort

	volume := openVolume(*ls_command_file_arg, *ls_command_image_offset, options)
	defer volume.Close()

	dir, err := parser.GetFileEntry(volume, *ls_command_arg)
	kingpin.FatalIfError(err, "Can not open path")
	defer dir.Release()

	infos, err := parser.ListDir(dir)
	kingpin.FatalIfError(err, "Can not list directory")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"MFT Id",
		"FullPath",
		"Size",
		"Mtime",
		"IsDir",
		"Filename",
	})
	table.SetCaption(true, fmt.Sprintf(
		"Directory listing for %v", *ls_command_arg))
	defer table.Render()

	for _, info := range infos {
		inode := strings.SplitN(info.MFTId, ":", 2)[0]
		mft_idx, _, _, err := parser.ParseMFTId(inode)
		kingpin.FatalIfError(err, "Can not parse MFT id %v", info.MFTId)

		full_path, err := parser.GetFullPath(volume, uint64(mft_idx))
		if err != nil {
			full_path = err.Error()
		}

		table.Append([]string{
			info.MFTId,
			full_path,
			fmt.Sprintf("%v", info.Size),
			fmt.Sprintf("%v", info.Mtime.In(time.UTC)),
			fmt.Sprintf("%v", info.IsDir),
			info.Name,
		})
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case ls_command.FullCommand():
			doLS()
		default:
			return false
		}
		return true
	})
}
