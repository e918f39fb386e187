package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/knolstudy/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"

	partPrefix    = "# "
	chapterPrefix = "## "
	topicPrefix   = "### "
)

// fenced reports whether line opens or closes a fenced code block.
func fenced(line string) bool {
	l := strings.TrimSpace(line)
	return strings.HasPrefix(l, "```") || strings.HasPrefix(l, "~~~")
}

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingContext
)

// ParseFile reads a file from the given path and extracts all notes.
func ParseFile(path string) ([]domain.Note, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all notes. Headings place the
// notes that follow them: "# " starts a part, "## " a chapter and "### " a
// topic. A new part clears the chapter and topic, a new chapter clears the topic.
// Inside a fenced code block every line is card text, headings and "---" included.
func Parse(r io.Reader) ([]domain.Note, error) {
	scanner := bufio.NewScanner(r)
	var notes []domain.Note
	var part, chapter, topic string
	var current domain.Note
	var block []string
	currentState := seeking
	inFence := false

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.TrimRight(strings.Join(block, "\n"), "\n")
		switch currentState {
		case readingQuestion:
			current.Question = content
		case readingAnswer:
			current.Answer = content
		case readingContext:
			current.Context = content
		}
		block = nil
	}

	finishNote := func() {
		flushBlock()
		if current.Question != "" {
			notes = append(notes, current)
		}
		current = domain.Note{Part: part, Chapter: chapter, Topic: topic}
		currentState = seeking
	}

	stripPrefix := func(line, prefix string) string {
		return strings.TrimPrefix(line[len(prefix):], " ")
	}

	for scanner.Scan() {
		line := scanner.Text()

		if currentState != seeking && (inFence || fenced(line)) {
			if fenced(line) {
				inFence = !inFence
			}
			block = append(block, line)
			continue
		}

		switch {
		case line == "---":
			finishNote()
			continue
		case strings.HasPrefix(line, topicPrefix):
			finishNote()
			topic = strings.TrimSpace(line[len(topicPrefix):])
			current.Topic = topic
			continue
		case strings.HasPrefix(line, chapterPrefix):
			finishNote()
			chapter = strings.TrimSpace(line[len(chapterPrefix):])
			topic = ""
			current.Chapter, current.Topic = chapter, topic
			continue
		case strings.HasPrefix(line, partPrefix):
			finishNote()
			part = strings.TrimSpace(line[len(partPrefix):])
			chapter, topic = "", ""
			current.Part, current.Chapter, current.Topic = part, chapter, topic
			continue
		}

		switch {
		case strings.HasPrefix(line, questionPrefix):
			if currentState != seeking { // A new question always starts a new note
				finishNote()
			}
			currentState = readingQuestion
			block = append(block, stripPrefix(line, questionPrefix))
		case strings.HasPrefix(line, answerPrefix):
			flushBlock()
			currentState = readingAnswer
			block = append(block, stripPrefix(line, answerPrefix))
		case strings.HasPrefix(line, contextPrefix):
			flushBlock()
			currentState = readingContext
			block = append(block, stripPrefix(line, contextPrefix))
		default:
			if currentState != seeking {
				block = append(block, line)
			}
		}
	}

	finishNote() // Finish the very last note in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return notes, nil
}
