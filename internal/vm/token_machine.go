package vm

// TokenResult is the token-tape counterpart of Result.
type TokenResult struct {
	Tape       []Token
	Head0      int
	Head1      int
	PC         int
	Iterations int
	Skipped    int
	State      ExecState
}

// ExecTokens runs the byte-machine over a token tape. Control flow is
// identical to Exec on the byte projection: conditional jumps test only the
// byte field, + and - modify only the byte field, and . and , transfer the
// entire token so provenance follows every copy. The tape is mutated in
// place. maxIter <= 0 selects DefaultMaxIter.
func ExecTokens(tape []Token, head0, head1, pc, maxIter int) TokenResult {
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}
	n := len(tape)
	if n == 0 {
		return TokenResult{Tape: tape, State: Finished}
	}
	iter := 0
	skipped := 0
	state := Terminated

loop:
	for iter < maxIter {
		switch tape[pc].Byte() {
		case '<':
			head0 = (head0 - 1 + n) % n
		case '>':
			head0 = (head0 + 1) % n
		case '{':
			head1 = (head1 - 1 + n) % n
		case '}':
			head1 = (head1 + 1) % n
		case '-':
			tape[head0] = tape[head0].WithByte(tape[head0].Byte() - 1)
		case '+':
			tape[head0] = tape[head0].WithByte(tape[head0].Byte() + 1)
		case '.':
			tape[head1] = tape[head0]
		case ',':
			tape[head0] = tape[head1]
		case '[':
			if tape[head0].Byte() == Zero {
				depth := 1
				matched := false
				for i := pc + 1; i < n; i++ {
					switch tape[i].Byte() {
					case '[':
						depth++
					case ']':
						depth--
					}
					if depth == 0 {
						pc = i
						matched = true
						break
					}
				}
				if !matched {
					state = ErrUnmatchedOpen
					break loop
				}
			}
		case ']':
			if tape[head0].Byte() != Zero {
				depth := 1
				matched := false
				for i := pc - 1; i >= 0; i-- {
					switch tape[i].Byte() {
					case ']':
						depth++
					case '[':
						depth--
					}
					if depth == 0 {
						pc = i
						matched = true
						break
					}
				}
				if !matched {
					state = ErrUnmatchedClose
					break loop
				}
			}
		default:
			skipped++
		}

		iter++
		pc++
		if pc >= n {
			state = Finished
			break
		}
	}

	return TokenResult{
		Tape:       tape,
		Head0:      head0,
		Head1:      head1,
		PC:         pc,
		Iterations: iter,
		Skipped:    skipped,
		State:      state,
	}
}
