package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandAgent はエージェント（ループバックAPIサーバー）として起動することを示す。
	CommandAgent Command = "agent"
	// CommandHealthcheck は起動中のエージェントにヘルスチェックを行うことを示す。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandAgentを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandAgent
	}

	switch args[0] {
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandAgent
	}
}
