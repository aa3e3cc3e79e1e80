package keys

import "strings"

// ssh-keygen reads passphrases through SSH_ASKPASS when forced, so they are
// handed over in the child's environment instead of its world-readable argv.
const (
	envAskpassMode = "SSHKIT_ASKPASS"
	envAskpassOld  = "SSHKIT_ASKPASS_OLD"
	envAskpassNew  = "SSHKIT_ASKPASS_NEW"
)

// AskpassEnv returns the environment that makes ssh-keygen ask self for
// passphrases. self is the sshkit executable.
func AskpassEnv(self, oldPass, newPass string) []string {
	return []string{
		"SSH_ASKPASS=" + self,
		"SSH_ASKPASS_REQUIRE=force",
		envAskpassMode + "=1",
		envAskpassOld + "=" + oldPass,
		envAskpassNew + "=" + newPass,
	}
}

// AskpassReply answers an ssh-keygen prompt when the process was started as
// its askpass helper. args are the helper's os.Args; the prompt is args[1].
func AskpassReply(args []string, getenv func(string) string) (string, bool) {
	if getenv(envAskpassMode) != "1" {
		return "", false
	}
	prompt := ""
	if len(args) > 1 {
		prompt = args[1]
	}
	if strings.HasPrefix(prompt, "Enter old passphrase") {
		return getenv(envAskpassOld), true
	}
	return getenv(envAskpassNew), true
}
