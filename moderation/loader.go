package moderation

import (
	"bufio"
	"chat-hub/errors"
	"io/fs"
	"strings"

	"github.com/samber/lo"
)

// LoadWords reads a dictionary, one word per line. path may be a single
// file or a directory of .txt files (one per language). Blank lines and
// lines starting with '#' are skipped.
func LoadWords(fsys fs.FS, path string) ([]string, error) {
	info, err := fs.Stat(fsys, path)
	if err != nil {
		return nil, err
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := fs.ReadDir(fsys, path)
		if err != nil {
			return nil, err
		}
		files = lo.FilterMap(entries, func(entry fs.DirEntry, _ int) (string, bool) {
			return path + "/" + entry.Name(), !entry.IsDir() && strings.HasSuffix(entry.Name(), ".txt")
		})
	}

	var words []string
	for _, file := range files {
		fileWords, err := readWords(fsys, file)
		if err != nil {
			return nil, err
		}
		words = append(words, fileWords...)
	}
	words = lo.Uniq(words)
	if len(words) == 0 {
		return nil, errors.ErrEmptyWords
	}
	return words, nil
}

func readWords(fsys fs.FS, name string) ([]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	// bufio.Scanner copes with both \n and \r\n endings
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}
