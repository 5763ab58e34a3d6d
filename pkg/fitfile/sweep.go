/*
	Copyright 2026 OpenVelo
*/

package fitfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/muktihari/fit/decoder"

	"github.com/openvelo/ride-engine/log"
)

const headerSize = 14

// Result lists the outcome of a startup sweep over the recording
// directory.
type Result struct {
	// Complete files passed the integrity check untouched.
	Complete []string
	// Recovered files were orphans whose header could be finalized.
	Recovered []string
	// Removed files were orphans with no salvageable data.
	Removed []string
}

// Sweep inspects every activity file in dir. Complete files are left
// alone, orphans from unclean shutdowns are finalized when their data
// section is intact and deleted otherwise. Runs before any new
// recording starts so a crashed session can never shadow a live one.
func Sweep(dir string, logger *log.Logger) (Result, error) {
	if logger == nil {
		logger = log.GetLogger("fitfile")
	}
	var ret Result
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ret, fmt.Errorf("reading recording dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".fit" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if checkIntegrity(path) == nil {
			ret.Complete = append(ret.Complete, path)
			continue
		}
		if err := salvage(path); err == nil {
			logger.Info("recovered orphaned activity file", log.String("file", path))
			ret.Recovered = append(ret.Recovered, path)
			continue
		} else {
			logger.Warn("removing unrecoverable activity file",
				log.String("file", path), log.ErrorField(err))
		}
		if err := os.Remove(path); err != nil {
			return ret, fmt.Errorf("removing orphan %s: %w", path, err)
		}
		ret.Removed = append(ret.Removed, path)
	}
	return ret, nil
}

func checkIntegrity(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := decoder.New(f).CheckIntegrity(); err != nil {
		return err
	}
	return nil
}

// salvage finalizes an orphan in place: the stream encoder leaves the
// header's data size zeroed until SequenceCompleted, so an unclean
// shutdown produces a valid data section behind an unfinished header
// and no file checksum. Patch the size, redo the header checksum and
// append the file checksum over the data.
func salvage(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(raw) <= headerSize || raw[0] != headerSize {
		return fmt.Errorf("no usable header")
	}
	if string(raw[8:12]) != ".FIT" {
		return fmt.Errorf("missing data type marker")
	}
	declared := binary.LittleEndian.Uint32(raw[4:8])
	if declared != 0 {
		// header was finalized, corruption is elsewhere
		return fmt.Errorf("data section corrupt")
	}

	dataSize := uint32(len(raw) - headerSize)
	binary.LittleEndian.PutUint32(raw[4:8], dataSize)
	binary.LittleEndian.PutUint16(raw[12:14], fitCRC(0, raw[:12]))

	buf := make([]byte, 0, len(raw)+2)
	buf = append(buf, raw...)
	buf = binary.LittleEndian.AppendUint16(buf, fitCRC(0, raw[headerSize:]))

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return err
	}
	return checkIntegrity(path)
}

var crcTable = [16]uint16{
	0x0000, 0xCC01, 0xD801, 0x1400, 0xF001, 0x3C00, 0x2800, 0xE401,
	0xA001, 0x6C00, 0x7800, 0xB401, 0x5000, 0x9C01, 0x8801, 0x4400,
}

// fitCRC is the nibble-wise CRC-16 defined by the FIT file format.
func fitCRC(crc uint16, data []byte) uint16 {
	for _, b := range data {
		tmp := crcTable[crc&0xF]
		crc = (crc >> 4) & 0x0FFF
		crc = crc ^ tmp ^ crcTable[b&0xF]

		tmp = crcTable[crc&0xF]
		crc = (crc >> 4) & 0x0FFF
		crc = crc ^ tmp ^ crcTable[(b>>4)&0xF]
	}
	return crc
}
