package app

import (
	"log/slog"
	"os/exec"
	"runtime"
)

// newBrowserOpener は認可URLをOS既定のブラウザで開く関数を返す。
// ブラウザを起動できない環境でもURLはログに出力するため、ユーザーは手動で開ける。
func newBrowserOpener(logger *slog.Logger) func(authURL string) error {
	return func(authURL string) error {
		logger.Info("ブラウザでGoogleログインを続けてください", slog.String("url", authURL))

		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", authURL)
		case "windows":
			cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", authURL)
		default:
			cmd = exec.Command("xdg-open", authURL)
		}
		if err := cmd.Start(); err != nil {
			logger.Warn("ブラウザを起動できませんでした", slog.String("error", err.Error()))
			return nil
		}
		go cmd.Wait()
		return nil
	}
}
