// linee-dump translates a hex-encoded stream of 68000 line-E opcodes
// into ARM64 host code and prints the result, one guest instruction at
// a time, disassembling the generated ARM64 words alongside it.
package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/m68kjit/linee/buffer"
	"github.com/m68kjit/linee/linee"
	"github.com/m68kjit/linee/log"
	"github.com/m68kjit/linee/regalloc"
	"github.com/spf13/cobra"
	"golang.org/x/arch/arm64/arm64asm"
)

var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "linee-dump",
		Short: "Translate a 68000 line-E opcode stream to ARM64 and print it",
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	var logLevel string
	var quiet bool

	var translateCmd = &cobra.Command{
		Use:   "translate <hex-words>",
		Short: "Decode a hex stream of 16-bit guest words and emit+print the ARM64 translation",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			log.InitLogger(logLevel)
			stream, err := parseWordStream(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "linee-dump: %v\n", err)
				os.Exit(1)
			}
			if err := translate(stream, quiet); err != nil {
				fmt.Fprintf(os.Stderr, "linee-dump: %v\n", err)
				os.Exit(1)
			}
		},
	}
	translateCmd.Flags().StringVar(&logLevel, "loglevel", "warn", "log level: trace, debug, info, warn, error, crit")
	translateCmd.Flags().BoolVar(&quiet, "quiet", false, "print only the disassembled ARM64, not the guest opcode breakdown")

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("linee-dump %s (%s)\n", Version, Commit)
		},
	}

	rootCmd.AddCommand(translateCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// parseWordStream accepts either a bare hex digit string or
// space/comma-separated groups of four hex digits and returns the guest
// 16-bit words in stream order.
func parseWordStream(arg string) ([]uint16, error) {
	fields := strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty instruction stream")
	}
	if len(fields) == 1 && len(fields[0])%4 == 0 && len(fields[0]) > 4 {
		raw, err := hex.DecodeString(fields[0])
		if err != nil {
			return nil, fmt.Errorf("decoding hex stream: %w", err)
		}
		words := make([]uint16, len(raw)/2)
		for i := range words {
			words[i] = binary.BigEndian.Uint16(raw[i*2:])
		}
		return words, nil
	}
	words := make([]uint16, len(fields))
	for i, f := range fields {
		raw, err := hex.DecodeString(fmt.Sprintf("%04s", f))
		if err != nil {
			return nil, fmt.Errorf("decoding word %q: %w", f, err)
		}
		words[i] = binary.BigEndian.Uint16(raw)
	}
	return words, nil
}

// translate runs stream through the line-E dispatcher one guest
// instruction at a time, printing the emitted host code (and, unless
// quiet, the guest opcode it came from) after each one.
func translate(stream []uint16, quiet bool) error {
	buf := buffer.New()
	alloc := regalloc.New(buf)

	pos := 0
	insnIndex := 0
	for pos < len(stream) {
		before := buf.Pos()
		wordsConsumed, insnConsumed := linee.EmitLineE(buf, alloc, stream[pos:])
		if wordsConsumed == 0 {
			return fmt.Errorf("translator made no progress at guest word %d (opcode %#04x)", pos, stream[pos])
		}

		if !quiet {
			fmt.Printf("; guest[%d]: %s (%d guest instruction(s), %d host instruction(s))\n",
				insnIndex, formatGuestWords(stream[pos:pos+wordsConsumed]), insnConsumed, buf.Pos()-before)
		}
		for _, word := range buf.Words(before, buf.Pos()) {
			printHostWord(word)
		}

		pos += wordsConsumed
		insnIndex++
	}
	return nil
}

func formatGuestWords(words []uint16) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = fmt.Sprintf("%04x", w)
	}
	return strings.Join(parts, " ")
}

// printHostWord disassembles a single 32-bit ARM64 instruction word and
// prints it in GNU syntax, falling back to the raw hex if arm64asm
// can't decode it (the PC-advance and exception sentinels this package
// emits for its external collaborators are not real ARM64 encodings).
func printHostWord(word uint32) {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], word)
	inst, err := arm64asm.Decode(raw[:])
	if err != nil {
		fmt.Printf("    %08x\t(sentinel, not a host instruction)\n", word)
		return
	}
	fmt.Printf("    %08x\t%s\n", word, arm64asm.GNUSyntax(inst))
}
