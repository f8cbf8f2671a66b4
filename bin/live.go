package main

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"time"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-fsntfs/parser"
)

var (
	hash_command = app.Command(
		"hash", "Hash every file on the volume, optionally comparing "+
			"with the same files read through the OS.")

	hash_command_file_arg = hash_command.Arg(
		"file", "The image file or device to inspect",
	).Required().String()

	hash_command_compare = hash_command.Flag(
		"compare", "A mount point of the same volume to compare with").String()

	hash_command_profile = hash_command.Flag(
		"profile", "Write profile data to this filename").String()
)

func hashReader(reader io.Reader, buf []byte) (string, error) {
	h := sha256.New()
	_, err := io.CopyBuffer(h, reader, buf)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func hashOSFile(path string, buf []byte) (string, error) {
	fd, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fd.Close()

	return hashReader(fd, buf)
}

func doHash() {
	now := time.Now()
	defer func() {
		fmt.Printf("Completed in %v\n", time.Now().Sub(now))
	}()

	if *hash_command_profile != "" {
		f2, err := os.Create(*hash_command_profile)
		kingpin.FatalIfError(err, "Creating Profile file.")
		err = pprof.StartCPUProfile(f2)
		kingpin.FatalIfError(err, "Profile file.")
		defer pprof.StopCPUProfile()
	}

	options := parser.GetDefaultOptions()
	options.BestEffort = true

	volume, err := parser.OpenVolumeFile(*hash_command_file_arg, options)
	kingpin.FatalIfError(err, "Can not open filesystem")
	defer volume.Close()

	ctx, cancel := interruptible(volume.SignalAbort)
	defer cancel()

	buf := make([]byte, 1024*1024)
	err = volume.WalkContext(ctx, func(path string, entry *parser.FileEntry) error {
		if entry.IsDirectory() || !entry.HasDefaultDataStream() {
			return nil
		}

		stream, err := entry.DefaultDataStream()
		if err != nil {
			fmt.Printf("ERROR Opening %v: %v\n", path, err)
			return nil
		}
		ntfs_hash, err := hashReader(stream, buf)
		stream.Release()
		if err != nil {
			fmt.Printf("ERROR Reading MFT entry %v: %v\n", entry.Index(), err)
			return nil
		}

		if *hash_command_compare == "" {
			fmt.Printf("%v %v\n", ntfs_hash, path)
			return nil
		}

		os_path := filepath.Join(*hash_command_compare,
			filepath.FromSlash(strings.ReplaceAll(path, "\\", "/")))
		os_hash, err := hashOSFile(os_path, buf)
		if err != nil {
			return nil
		}

		if os_hash != ntfs_hash {
			fmt.Printf("ERROR Mismatch hash on MFT entry %v:\n%s\n%s\n",
				entry.Index(), os_hash, ntfs_hash)
		} else {
			fmt.Printf("%v: %v %v\n", time.Now().Format(time.RFC3339),
				ntfs_hash, path)
		}
		return nil
	})
	kingpin.FatalIfError(err, "Walking the volume")
	printStats(volume)
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case hash_command.FullCommand():
			doHash()
		default:
			return false
		}
		return true
	})
}
