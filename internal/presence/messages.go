package presence

const (
	greetCommand = "/반가워"
	greetReply   = "안녕하세요!"
)
