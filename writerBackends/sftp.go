package writerbackends

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"jpg2png/logger"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// UploadToSFTPWithCreds uploads content from an io.Reader to a remote server via SFTP.
// accessInfo needs host and user plus password or privateKey (base64 or raw PEM).
// Optional: port (default 22), remoteDir prefixed to folder/filename, hostKey
// (authorized_keys line) to pin the server key.
func UploadToSFTPWithCreds(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	if err := checkRequired(accessInfo, Required(SFTP)...); err != nil {
		return err
	}
	port := accessInfo["port"]
	if port == "" {
		port = "22"
	}
	remotePath := path.Join(accessInfo["remoteDir"], objectKey(accessInfo))

	auths, err := sftpAuth(accessInfo)
	if err != nil {
		return err
	}
	hostKeyCallback, err := sftpHostKey(accessInfo["hostKey"])
	if err != nil {
		return err
	}

	config := &ssh.ClientConfig{
		User:            accessInfo["user"],
		Auth:            auths,
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}

	addr := net.JoinHostPort(accessInfo["host"], port)

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial tcp %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("create sftp client: %w", err)
	}
	defer sftpClient.Close()

	return uploadSFTP(sftpClient, remotePath, reader, addr)
}

// uploadSFTP writes to a sibling temp name and renames it into place.
func uploadSFTP(client *sftp.Client, remotePath string, reader io.Reader, addr string) error {
	dir := path.Dir(remotePath)
	if err := mkdirAllSFTP(client, dir); err != nil {
		return fmt.Errorf("ensure remote dir %s: %w", dir, err)
	}

	partPath := remotePath + ".part"
	f, err := client.Create(partPath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", partPath, err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		client.Remove(partPath)
		return fmt.Errorf("copy to remote file %s: %w", partPath, err)
	}
	if err := f.Close(); err != nil {
		client.Remove(partPath)
		return fmt.Errorf("close remote file %s: %w", partPath, err)
	}
	if err := client.PosixRename(partPath, remotePath); err != nil {
		client.Remove(partPath)
		return fmt.Errorf("rename remote file %s: %w", remotePath, err)
	}

	logger.Infof("Successfully uploaded '%s' to %s", remotePath, addr)
	return nil
}

func sftpAuth(accessInfo map[string]string) ([]ssh.AuthMethod, error) {
	if privateKey := accessInfo["privateKey"]; privateKey != "" {
		signer, err := ssh.ParsePrivateKey(decodeMaybeBase64(privateKey))
		if err != nil {
			return nil, fmt.Errorf("%w: parse private key: %v", ErrMissingConfig, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if password := accessInfo["password"]; password != "" {
		return []ssh.AuthMethod{ssh.Password(password)}, nil
	}
	return nil, fmt.Errorf("%w: no auth method provided; set password or privateKey", ErrMissingConfig)
}

func sftpHostKey(line string) (ssh.HostKeyCallback, error) {
	if line == "" {
		logger.Warn("sftp host key not pinned; accepting any server key")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
	if err != nil {
		return nil, fmt.Errorf("%w: parse host key: %v", ErrMissingConfig, err)
	}
	return ssh.FixedHostKey(pub), nil
}

// mkdirAllSFTP mimics os.MkdirAll for an SFTP server by creating each segment of the path.
func mkdirAllSFTP(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	parts := strings.Split(dir, "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}

	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if os.IsNotExist(err) {
				if err := client.Mkdir(cur); err != nil {
					return fmt.Errorf("mkdir %s: %w", cur, err)
				}
			} else {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
		}
	}
	return nil
}
